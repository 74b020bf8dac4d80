package schema

import "fmt"

// Structure bounds the number of modules and topics per module for a depth.
type Structure struct {
	MinModules int
	MaxModules int
	MinTopics  int
	MaxTopics  int
}

var structures = map[int]Structure{
	1: {MinModules: 3, MaxModules: 3, MinTopics: 3, MaxTopics: 3},
	2: {MinModules: 3, MaxModules: 3, MinTopics: 4, MaxTopics: 4},
	3: {MinModules: 4, MaxModules: 4, MinTopics: 5, MaxTopics: 5},
	4: {MinModules: 4, MaxModules: 4, MinTopics: 5, MaxTopics: 6},
	5: {MinModules: 4, MaxModules: 5, MinTopics: 5, MaxTopics: 8},
}

func StructureForDepth(depth int) (Structure, error) {
	s, ok := structures[depth]
	if !ok {
		return Structure{}, fmt.Errorf("depth must be between 1 and 5, got %d", depth)
	}
	return s, nil
}

func (s Structure) String() string {
	return fmt.Sprintf("%s modules with %s topics each", span(s.MinModules, s.MaxModules), span(s.MinTopics, s.MaxTopics))
}

func span(lo, hi int) string {
	if lo == hi {
		return fmt.Sprint(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}
