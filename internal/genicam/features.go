package genicam

import "sort"

// FeatureSet is a map-backed FeatureMap used by the built-in device
// backends. Features are seeded at construction; marking a feature
// unavailable keeps its storage but makes every access fail with a
// *FeatureError, which is how real node maps behave for locked or
// absent nodes.
type FeatureSet struct {
	ints        map[string]int64
	floats      map[string]float64
	bools       map[string]bool
	enums       map[string]string
	enumEntries map[string][]string
	unavailable map[string]bool
}

// NewFeatureSet returns an empty feature set.
func NewFeatureSet() *FeatureSet {
	return &FeatureSet{
		ints:        make(map[string]int64),
		floats:      make(map[string]float64),
		bools:       make(map[string]bool),
		enums:       make(map[string]string),
		enumEntries: make(map[string][]string),
		unavailable: make(map[string]bool),
	}
}

// SeedInt, SeedFloat, SeedBool and SeedEnum register a feature with its
// initial value. SeedEnum also registers the legal entries.
func (f *FeatureSet) SeedInt(name string, v int64)    { f.ints[name] = v }
func (f *FeatureSet) SeedFloat(name string, v float64) { f.floats[name] = v }
func (f *FeatureSet) SeedBool(name string, v bool)    { f.bools[name] = v }

func (f *FeatureSet) SeedEnum(name, value string, entries ...string) {
	f.enums[name] = value
	f.enumEntries[name] = append([]string(nil), entries...)
}

// MarkUnavailable hides a feature from Available and access.
func (f *FeatureSet) MarkUnavailable(names ...string) {
	for _, n := range names {
		f.unavailable[n] = true
	}
}

// DropEnumEntry removes one entry from an enumeration feature.
func (f *FeatureSet) DropEnumEntry(name, entry string) {
	entries := f.enumEntries[name]
	for i, e := range entries {
		if e == entry {
			f.enumEntries[name] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Names returns the sorted names of all seeded features. Diagnostic only.
func (f *FeatureSet) Names() []string {
	seen := make(map[string]struct{})
	for n := range f.ints {
		seen[n] = struct{}{}
	}
	for n := range f.floats {
		seen[n] = struct{}{}
	}
	for n := range f.bools {
		seen[n] = struct{}{}
	}
	for n := range f.enums {
		seen[n] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *FeatureSet) exists(name string) bool {
	if _, ok := f.ints[name]; ok {
		return true
	}
	if _, ok := f.floats[name]; ok {
		return true
	}
	if _, ok := f.bools[name]; ok {
		return true
	}
	_, ok := f.enums[name]
	return ok
}

// Available implements FeatureMap.
func (f *FeatureSet) Available(name string) bool {
	return f.exists(name) && !f.unavailable[name]
}

// EnumEntryAvailable implements FeatureMap.
func (f *FeatureSet) EnumEntryAvailable(name, entry string) bool {
	if !f.Available(name) {
		return false
	}
	for _, e := range f.enumEntries[name] {
		if e == entry {
			return true
		}
	}
	return false
}

func (f *FeatureSet) access(name, kind string) error {
	if !f.Available(name) {
		return &FeatureError{Feature: name, Reason: "not available"}
	}
	switch kind {
	case "int":
		if _, ok := f.ints[name]; !ok {
			return &FeatureError{Feature: name, Reason: "not an integer feature"}
		}
	case "float":
		if _, ok := f.floats[name]; !ok {
			return &FeatureError{Feature: name, Reason: "not a float feature"}
		}
	case "bool":
		if _, ok := f.bools[name]; !ok {
			return &FeatureError{Feature: name, Reason: "not a boolean feature"}
		}
	case "enum":
		if _, ok := f.enums[name]; !ok {
			return &FeatureError{Feature: name, Reason: "not an enumeration feature"}
		}
	}
	return nil
}

func (f *FeatureSet) SetInt(name string, v int64) error {
	if err := f.access(name, "int"); err != nil {
		return err
	}
	f.ints[name] = v
	return nil
}

func (f *FeatureSet) SetFloat(name string, v float64) error {
	if err := f.access(name, "float"); err != nil {
		return err
	}
	f.floats[name] = v
	return nil
}

func (f *FeatureSet) SetBool(name string, v bool) error {
	if err := f.access(name, "bool"); err != nil {
		return err
	}
	f.bools[name] = v
	return nil
}

func (f *FeatureSet) SetEnum(name, entry string) error {
	if err := f.access(name, "enum"); err != nil {
		return err
	}
	if !f.EnumEntryAvailable(name, entry) {
		return &FeatureError{Feature: name, Reason: "entry " + entry + " not available"}
	}
	f.enums[name] = entry
	return nil
}

func (f *FeatureSet) GetInt(name string) (int64, error) {
	if err := f.access(name, "int"); err != nil {
		return 0, err
	}
	return f.ints[name], nil
}

func (f *FeatureSet) GetFloat(name string) (float64, error) {
	if err := f.access(name, "float"); err != nil {
		return 0, err
	}
	return f.floats[name], nil
}

func (f *FeatureSet) GetEnum(name string) (string, error) {
	if err := f.access(name, "enum"); err != nil {
		return "", err
	}
	return f.enums[name], nil
}
