package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/carepass/internal/access"
	"github.com/shandysiswandi/carepass/internal/notification"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
)

// initModules builds notification before access so that in-process delivery
// can be handed to the access module.
func (a *App) initModules() {
	if a.config.GetBool("modules.notification.enabled") {
		var consumer messaging.Consumer
		if a.messaging != nil {
			consumer = a.messaging
		}

		mod, err := notification.New(notification.Dependency{
			Ctx:        a.ctx,
			Config:     a.config,
			Instrument: a.ins,
			Validator:  a.validator,
			Clock:      a.clock,
			Store:      a.store,
			UUID:       a.uuid,
			Goroutine:  a.goroutine,
			Mail:       a.mail,
			SMS:        a.sms,
			Consumer:   consumer,
		})
		if err != nil {
			slog.Error("failed to init module notification", "error", err)
			os.Exit(1)
		}
		a.notification = mod
	}

	if a.config.GetBool("modules.access.enabled") {
		dep := access.Dependency{
			Config:     a.config,
			Instrument: a.ins,
			Validator:  a.validator,
			Clock:      a.clock,
			Store:      a.store,
			Hasher:     a.hasher,
			Signer:     a.jwt,
			Directory:  a.directory,
			Policy:     a.policy,
			UID:        a.uid,
			UUID:       a.uuid,
			Goroutine:  a.goroutine,
		}
		if a.messaging != nil {
			dep.Publisher = a.messaging
		}
		if a.notification != nil {
			dep.Deliver = a.notification.DeliverOTP
		}

		mod, err := access.New(dep)
		if err != nil {
			slog.Error("failed to init module access", "error", err)
			os.Exit(1)
		}
		a.access = mod
	}
}
