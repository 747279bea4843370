package raddict

import (
	_ "embed"
	"sync"
)

//go:embed default_dictionary.json
var defaultDictionaryJSON []byte

var (
	defaultDictionaryOnce sync.Once
	defaultDictionary     *Dictionary
)

// Default returns the dictionary bundled with the module: the standard RFC
// 2865/2866 attributes plus a couple of vendor examples (Cisco, and a
// synthetic "Example" vendor exercising the salted/tagged/concat/with-len
// attribute flavors). It is built once from the embedded JSON document and
// is safe to share across goroutines, matching the reference library's
// practice of shipping default resources via embed.FS (core/resources.go).
func Default() *Dictionary {
	defaultDictionaryOnce.Do(func() {
		d, err := NewDictionaryFromJSON(defaultDictionaryJSON)
		if err != nil {
			panic("raddict: bad embedded default dictionary: " + err.Error())
		}
		defaultDictionary = d
	})
	return defaultDictionary
}
