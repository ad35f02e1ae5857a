package enums

import "fmt"

// Platform identifies where a subscription was purchased.
type Platform string

const (
	PlatformIOS Platform = "ios"
	PlatformWeb Platform = "web"
)

var validPlatforms = []Platform{
	PlatformIOS,
	PlatformWeb,
}

// String implements fmt.Stringer.
func (p Platform) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p Platform) IsValid() bool {
	for _, candidate := range validPlatforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlatform converts raw input into a Platform.
func ParsePlatform(value string) (Platform, error) {
	for _, candidate := range validPlatforms {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid platform %q", value)
}
