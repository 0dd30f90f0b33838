package gpib

// Notifier receives human readable progress and error text.
// Implementations must not block.
type Notifier interface {
	PostInfo(text string)
	PostError(text string)
}

type nopNotifier struct{}

func (nopNotifier) PostInfo(string)  {}
func (nopNotifier) PostError(string) {}
