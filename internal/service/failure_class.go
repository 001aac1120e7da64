package service

import (
	"errors"

	"github.com/mailrun/mailrun/internal/recipient"
	"github.com/mailrun/mailrun/internal/smtp"
	"github.com/mailrun/mailrun/internal/template"
)

// Failure classes stored on failure records and used as metric tags. These
// are stable strings; renaming one breaks dashboards built on them.
const (
	ClassSourceUnreadable = "source_unreadable"
	ClassSourceSchema     = "source_schema"
	ClassTemplateCompile  = "template_compile"
	ClassRenderError      = "render_error"
	ClassAuthFailed       = "auth_failed"
	ClassConnectFailed    = "connect_failed"
	ClassSendRejected     = "send_rejected"
	ClassTransportClosed  = "transport_closed"
	ClassUnclassified     = "unclassified"
)

// FailureClass maps any pipeline error to its stable class string. Unknown
// errors map to ClassUnclassified; nothing is dropped.
func FailureClass(err error) string {
	if err == nil {
		return ClassUnclassified
	}

	var (
		sourceErr  *recipient.SourceError
		schemaErr  *recipient.SchemaError
		compileErr *template.CompileError
		renderErr  *template.RenderError
		authErr    *smtp.AuthError
		connectErr *smtp.ConnectError
		rejected   *smtp.SendRejectedError
	)
	switch {
	case errors.As(err, &schemaErr):
		return ClassSourceSchema
	case errors.As(err, &sourceErr):
		return ClassSourceUnreadable
	case errors.As(err, &compileErr):
		return ClassTemplateCompile
	case errors.As(err, &renderErr):
		return ClassRenderError
	case errors.As(err, &authErr):
		return ClassAuthFailed
	case errors.As(err, &connectErr):
		return ClassConnectFailed
	case errors.Is(err, smtp.ErrTransportClosed):
		return ClassTransportClosed
	case errors.As(err, &rejected):
		return ClassSendRejected
	}
	return ClassUnclassified
}
