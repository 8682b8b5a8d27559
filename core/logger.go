package core

// Logger is any leveled logger service.
// args may carry context values (error chains, maps, the acting user) alongside the message.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
