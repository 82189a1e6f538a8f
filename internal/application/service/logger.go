package service

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// TransitionObserver is told the result of every transition attempt
type TransitionObserver interface {
	ObserveTransition(result string)
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(string) {}
