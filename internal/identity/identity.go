package identity

// User identifies the signed-in owner of locally recorded data.
type User struct {
	ID    string
	Email string
}

// Event marks a sign-in or sign-out transition.
type Event int

const (
	EventSignedIn Event = iota
	EventSignedOut
)

// Provider exposes the current user, if any, and state-change notifications.
type Provider interface {
	// CurrentUser returns the signed-in user and true, or false when no
	// usable identity is available.
	CurrentUser() (User, bool)
	// Subscribe registers a listener for sign-in/sign-out transitions and
	// returns a cancel function that unregisters it.
	Subscribe(listener func(Event, User)) (cancel func())
}
