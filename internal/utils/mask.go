package utils

// MaskSecret keeps the first four characters of s for log output. An empty
// secret stays empty so an unset key still reads as unset.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "*****"
	}
	return s[:4] + "*****"
}
