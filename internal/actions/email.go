package actions

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/petrijr/credflow/internal/notify"
	"github.com/petrijr/credflow/internal/params"
	"github.com/petrijr/credflow/pkg/api"
)

// EmailOutput is the output of a SendEmail action.
type EmailOutput struct {
	To     string    `json:"to"`
	SentAt time.Time `json:"sentAt"`
}

// SendEmail renders and sends a notification e-mail.
type SendEmail struct {
	Params *params.Resolver
	Mailer notify.Mailer
	Now    func() time.Time
}

func (h *SendEmail) Handle(ctx context.Context, req *api.ActionRequest) error {
	in := req.Action.Input.SendEmail
	if in == nil {
		return api.Errorf(api.KindConfiguration, "action %s has no sendEmail input", req.ActionID)
	}

	to, err := h.Params.Resolve(in.To, req.Context, req.Previous)
	if err != nil || strings.TrimSpace(to) == "" {
		return api.NewError(api.KindConfiguration, "Recipient is required", err)
	}

	names := make([]string, 0, len(in.Parameters))
	for name := range in.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]string, len(names))
	for _, name := range names {
		v, err := h.Params.Resolve(in.Parameters[name], req.Context, req.Previous)
		if err != nil {
			return err
		}
		values[name] = v
	}

	msg := notify.Message{
		To:      to,
		Subject: notify.Render(in.Subject, values),
		Body:    notify.Render(in.Body, values),
	}
	if err := h.Mailer.Send(ctx, msg); err != nil {
		return api.NewError(api.KindResolution, "Failed to send email", err)
	}

	return req.SetOutput(EmailOutput{To: to, SentAt: h.Now().UTC()})
}
