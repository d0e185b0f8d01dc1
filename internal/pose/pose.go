// Package pose maps the mouth and eye state of a character to one of four pre-drawn
// poses.
package pose

// Key identifies one of the four (eyes x mouth) poses.
type Key int

// The four poses. Their names ("00".."03") are the file stems of the pose images.
const (
	EyesOpenMouthClosed Key = iota
	EyesOpenMouthOpen
	EyesClosedMouthClosed
	EyesClosedMouthOpen
)

// Count is the number of distinct poses.
const Count = 4

var names = [Count]string{"00", "01", "02", "03"}

// table is indexed by [eyesClosed][mouthOpen].
var table = [2][2]Key{
	{EyesOpenMouthClosed, EyesOpenMouthOpen},
	{EyesClosedMouthClosed, EyesClosedMouthOpen},
}

// Paths maps a pose to the image file that draws it.
type Paths map[Key]string

// Select returns the pose for the given mouth and eye state.
func Select(mouthOpen, eyesClosed bool) Key {
	return table[boolIndex(eyesClosed)][boolIndex(mouthOpen)]
}

// Keys returns all poses in canonical order.
func Keys() []Key {
	return []Key{EyesOpenMouthClosed, EyesOpenMouthOpen, EyesClosedMouthClosed, EyesClosedMouthOpen}
}

// Name returns the two-digit pose name.
func (k Key) Name() string {
	if k < 0 || int(k) >= Count {
		return "??"
	}

	return names[k]
}

func (k Key) String() string {
	return k.Name()
}

// ParseKey converts a pose name back to its key.
func ParseKey(name string) (Key, bool) {
	for i, candidate := range names {
		if candidate == name {
			return Key(i), true
		}
	}

	return 0, false
}

// Fallback picks the pose to draw for want given the available ones: the exact pose,
// then eyes-open/mouth-closed, then the first available pose in canonical order.
// exact is false whenever a substitute was chosen; ok is false if nothing is available.
func Fallback(want Key, available func(Key) bool) (key Key, exact, ok bool) {
	if available(want) {
		return want, true, true
	}

	if available(EyesOpenMouthClosed) {
		return EyesOpenMouthClosed, false, true
	}

	for _, candidate := range Keys() {
		if available(candidate) {
			return candidate, false, true
		}
	}

	return 0, false, false
}

func boolIndex(value bool) int {
	if value {
		return 1
	}

	return 0
}
