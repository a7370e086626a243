// Package handlers contains the content event handlers bound to the scoped
// and general routes.
package handlers

import (
	"context"

	"github.com/drblury/eventgateway/internal/event"
	"github.com/drblury/eventgateway/internal/routing"
	"github.com/drblury/eventgateway/internal/runtime/logging"
)

// ScopedContentHandler handles content created under the watched parent node.
type ScopedContentHandler struct {
	Logger logging.ServiceLogger
}

func (h ScopedContentHandler) OnReceive(_ context.Context, ev event.Event) error {
	logger(h.Logger).Info("Handling scoped content event", fields(ev))
	return nil
}

// GeneralContentHandler handles every other content event.
type GeneralContentHandler struct {
	Logger logging.ServiceLogger
}

func (h GeneralContentHandler) OnReceive(_ context.Context, ev event.Event) error {
	logger(h.Logger).Info("Handling content event", fields(ev))
	return nil
}

// Register binds both content handlers to their routes.
func Register(reg *routing.Registry, log logging.ServiceLogger) error {
	if err := reg.Register(routing.RouteScoped, ScopedContentHandler{Logger: log}); err != nil {
		return err
	}
	return reg.Register(routing.RouteGeneral, GeneralContentHandler{Logger: log})
}

func fields(ev event.Event) logging.LogFields {
	return logging.LogFields{
		"event_type": ev.Type,
		"node_id":    ev.Resource.ID,
	}
}

func logger(l logging.ServiceLogger) logging.ServiceLogger {
	if l == nil {
		return logging.Nop()
	}
	return l
}
