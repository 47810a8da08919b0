package initdata

import (
	"fmt"
	"strconv"
	"time"
)

const DefaultMaxAge = 24 * time.Hour

// CheckFreshness rejects payloads whose auth_date is more than maxAge before
// now. A payload without auth_date passes unless required is set.
func CheckFreshness(p *Pairs, now time.Time, maxAge time.Duration, required bool) error {
	raw, ok := p.Get(AuthDateKey)
	if !ok {
		if required {
			return fmt.Errorf("%w: missing", ErrInvalidAuthDate)
		}
		return nil
	}

	authDate, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || authDate < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidAuthDate, raw)
	}

	age := now.Unix() - authDate
	if age > int64(maxAge/time.Second) {
		return fmt.Errorf("%w: issued %ds ago", ErrStaleAuthData, age)
	}
	return nil
}
