package style

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const snap = 64

// Dimensions turns an aspect ratio such as "16:9" into a width and height whose
// shorter side is baseSize, both snapped to the nearest multiple of 64.
func Dimensions(aspectRatio string, baseSize int) (width, height int, err error) {
	w, h, err := parseRatio(aspectRatio)
	if err != nil {
		return 0, 0, err
	}
	if baseSize <= 0 {
		return 0, 0, fmt.Errorf("invalid base size %d", baseSize)
	}

	base := float64(baseSize)
	var fw, fh float64
	if w > h {
		fh = base
		fw = roundHalfUp(base * w / h)
	} else {
		fw = base
		fh = roundHalfUp(base * h / w)
	}
	return int(roundHalfUp(fw/snap)) * snap, int(roundHalfUp(fh/snap)) * snap, nil
}

func parseRatio(s string) (float64, float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	w, errW := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return w, h, nil
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// AspectClass is the css class used on a container for ratio, e.g. "aspect-16-9".
func AspectClass(aspectRatio string) string {
	return "aspect-" + strings.ReplaceAll(aspectRatio, ":", "-")
}
