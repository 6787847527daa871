package knowledge

// Vocabulary maps names to dense ids in first-seen order
type Vocabulary struct {
	hash map[string]int64
	keys []string
}

// NewVocabulary creates an empty vocabulary
func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		hash: make(map[string]int64),
		keys: make([]string, 0),
	}
}

// NewVocabularyFrom builds a vocabulary whose ids follow the order of names
func NewVocabularyFrom(names ...string) *Vocabulary {
	v := NewVocabulary()
	for _, n := range names {
		v.GetOrCreate(n)
	}
	return v
}

// GetOrCreate gets or creates the id of name
func (v *Vocabulary) GetOrCreate(name string) int64 {
	if id, exists := v.hash[name]; exists {
		return id
	}

	id := int64(len(v.keys))
	v.hash[name] = id
	v.keys = append(v.keys, name)
	return id
}

// ID returns the id of name
func (v *Vocabulary) ID(name string) (int64, bool) {
	id, ok := v.hash[name]
	return id, ok
}

// Name returns the name of an id, or "" when out of range
func (v *Vocabulary) Name(id int64) string {
	if id < 0 || id >= int64(len(v.keys)) {
		return ""
	}
	return v.keys[id]
}

// Names returns all names ordered by id
func (v *Vocabulary) Names() []string {
	return v.keys
}

// Len returns the vocabulary size
func (v *Vocabulary) Len() int {
	return len(v.keys)
}
