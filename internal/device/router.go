package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/midikiti/internal/observability"
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Router applies completed frames to a layout.
type Router struct {
	layout *Layout

	// OnPreferences runs after an interface's values are replaced.
	OnPreferences func(*Interface)
	// OnMessage receives every frame the router does not interpret.
	OnMessage func(id protocol.CommandID, payload []byte)
}

func NewRouter(layout *Layout) *Router {
	return &Router{layout: layout}
}

func (r *Router) Layout() *Layout {
	return r.layout
}

// Dispatch routes one frame. A non-nil error is always a *RouteError and
// means the frame was dropped.
func (r *Router) Dispatch(f frame.Frame) error {
	switch f.ID {
	case protocol.GetPreferences:
		return r.applyPreferences(f)
	case protocol.SetPreferences:
		log.Debug().
			Int("size", len(f.Payload)).
			Msg("device.Router.Dispatch ignored inbound set_preferences")
		return nil
	case protocol.GetLayout:
		log.Debug().Msg("device.Router.Dispatch ignored late get_layout")
		return nil
	default:
		if r.OnMessage != nil {
			r.OnMessage(f.ID, f.Payload)
		}
		return nil
	}
}

func (r *Router) applyPreferences(f frame.Frame) error {
	if len(f.Payload) < 2 {
		return &RouteError{
			CommandID: f.ID,
			Commander: -1,
			Interface: -1,
			Err:       fmt.Errorf("%w: header len=%d", protocol.ErrTruncatedPayload, len(f.Payload)),
		}
	}
	c, i := int(f.Payload[0]), int(f.Payload[1])
	if r.layout == nil {
		return &RouteError{CommandID: f.ID, Commander: c, Interface: i, Err: ErrNilLayout}
	}
	iface, err := r.layout.Interface(c, i)
	if err != nil {
		return &RouteError{CommandID: f.ID, Commander: c, Interface: i, Err: err}
	}
	applied, err := iface.ApplyPreferences(f.Payload[2:])
	if err != nil {
		return &RouteError{CommandID: f.ID, Commander: c, Interface: i, Err: err}
	}
	if !applied {
		log.Debug().
			Int("commander", c).
			Int("interface", i).
			Str("type", iface.TypeName()).
			Msg("device.Router preferences for interface without schema")
		return nil
	}
	log.Debug().
		Int("commander", c).
		Int("interface", i).
		Uint64("version", iface.Version()).
		Msg("device.Router preferences loaded")
	if r.OnPreferences != nil {
		r.OnPreferences(iface)
	}
	return nil
}

// Run dispatches frames until the channel closes or ctx is cancelled.
// Route errors are logged and counted; they never stop the loop.
func (r *Router) Run(ctx context.Context, frames <-chan frame.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := r.Dispatch(f); err != nil {
				observability.RecordRouteError(f.ID.String())
				var rerr *RouteError
				if errors.As(err, &rerr) {
					log.Warn().
						Err(rerr.Err).
						Str("command", rerr.CommandID.String()).
						Int("commander", rerr.Commander).
						Int("interface", rerr.Interface).
						Msg("device.Router.Run frame dropped")
					continue
				}
				log.Warn().Err(err).Msg("device.Router.Run frame dropped")
			}
		}
	}
}
