package notification

import (
	"log/slog"

	"github.com/steveyegge/tenet/internal/config"
)

// Open builds a dispatcher from configuration: the log channel is always
// on, plus one webhook per configured URL and NATS when a URL is set. The
// returned close function releases the NATS connection.
func Open(s config.NotifySettings, logger *slog.Logger) (*Dispatcher, func(), error) {
	sinks := []Sink{LogSink{Logger: logger}}
	for _, url := range s.Webhooks {
		if url != "" {
			sinks = append(sinks, NewWebhookSink(url))
		}
	}

	closeFn := func() {}
	if s.NATSURL != "" {
		prefix := s.NATSSubject
		if prefix == "" {
			prefix = "tenet.notifications"
		}
		ns, err := ConnectNATS(s.NATSURL, prefix)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, ns)
		closeFn = ns.Close
	}
	return NewDispatcher(logger, sinks...), closeFn, nil
}
