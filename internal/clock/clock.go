// Package clock abstracts time for components that stamp or age data.
package clock

import "time"

// Clock supplies the current time. The sender core uses it for flush-age
// decisions so tests can substitute a fake.
type Clock interface {
	Now() time.Time
}
