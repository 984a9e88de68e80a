package logger

// defLogger backs the package-level helpers and is handed to components
// built without an explicit logger.
var defLogger = NewSlog(InfoLevel, false)

func Debug(msg string, keysAndValues ...any) { defLogger.Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { defLogger.Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { defLogger.Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...any) { defLogger.Error(msg, keysAndValues...) }
func Fatal(msg string, keysAndValues ...any) { defLogger.Fatal(msg, keysAndValues...) }

// SetLevel sets the level of the default logger.
func SetLevel(level Level) { defLogger.SetLevel(level) }

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	return defLogger
}

// SetLogger replaces the process-wide default logger. Nil is ignored.
// Components already built keep the logger they were given.
func SetLogger(l Logger) {
	if l != nil {
		defLogger = l
	}
}

// With returns a child of the default logger.
func With(keyValues ...any) Logger {
	return defLogger.With(keyValues...)
}
