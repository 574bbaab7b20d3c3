package session

// Event signals a session transition.
type Event int

const (
	EventLogin Event = iota
	EventLogout
)

// Provider answers "is there a valid session right now" synchronously and
// notifies subscribers on login and logout.
type Provider interface {
	Authenticated() bool
	// Token returns the current session token, if any.
	Token() (string, bool)
	// Subscribe registers a handler for session events and returns a
	// function that removes it. Handlers are invoked synchronously in
	// the goroutine that triggered the transition.
	Subscribe(handler func(Event)) (unsubscribe func())
}
