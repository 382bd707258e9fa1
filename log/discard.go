package log

// DiscardLogger drops every entry. Tests and embedders that do their own
// logging use it.
var DiscardLogger Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Debug(...any)              {}
func (discardLogger) Debugf(string, ...any)     {}
func (discardLogger) Info(...any)               {}
func (discardLogger) Infof(string, ...any)      {}
func (discardLogger) Warn(...any)               {}
func (discardLogger) Warnf(string, ...any)      {}
func (discardLogger) Error(...any)              {}
func (discardLogger) Errorf(string, ...any)     {}
func (d discardLogger) With(string, any) Logger { return d }
func (discardLogger) LogLevel() Level           { return Disabled }
