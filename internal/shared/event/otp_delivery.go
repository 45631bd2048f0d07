package event

const OTPDeliveryDestination string = "otp_delivery"
const OTPDeliveryDestinationConsumerNotification string = "otp_delivery_notification"

type OTPDeliveryMessage struct {
	DeliveryID string `json:"delivery_id"`
	Purpose    string `json:"purpose"`
	Channel    string `json:"channel"`
	Code       string `json:"code"`
	ValidFor   int64  `json:"valid_for_seconds"`
}
