// Package messaging publishes and consumes messages independent of the broker.
//
// NATS, Kafka and NSQ are supported, plus an in-process driver for single
// instance deployments and tests. Handlers that return nil have their message
// acknowledged; an error asks the broker to redeliver when it can.
package messaging
