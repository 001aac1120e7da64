package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailrun/mailrun/internal/recipient"
	"github.com/mailrun/mailrun/internal/smtp"
	"github.com/mailrun/mailrun/internal/template"
)

func TestFailureClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ClassUnclassified},
		{"schema", &recipient.SchemaError{Missing: []string{"Email"}}, ClassSourceSchema},
		{"source", &recipient.SourceError{Err: errors.New("read failed")}, ClassSourceUnreadable},
		{"compile", &template.CompileError{Err: errors.New("bad syntax")}, ClassTemplateCompile},
		{"render", &template.RenderError{Email: "a@b.com", Err: errors.New("boom")}, ClassRenderError},
		{"auth", &smtp.AuthError{Code: 535, Msg: "rejected"}, ClassAuthFailed},
		{"connect", &smtp.ConnectError{Host: "h", Port: 25, Err: errors.New("refused")}, ClassConnectFailed},
		{"rejected", &smtp.SendRejectedError{Email: "a@b.com", Err: errors.New("550")}, ClassSendRejected},
		{"transport closed", smtp.ErrTransportClosed, ClassTransportClosed},
		{"wrapped transport closed", fmt.Errorf("send: %w", smtp.ErrTransportClosed), ClassTransportClosed},
		{"wrapped auth", fmt.Errorf("dial: %w", &smtp.AuthError{Msg: "no"}), ClassAuthFailed},
		{"unknown", errors.New("something else"), ClassUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureClass(tt.err))
		})
	}
}
