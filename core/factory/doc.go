// Package factory provides a small generic registry used to instantiate
// pluggable modules such as metrics sinks and history stores from
// configuration. A module is described by a type string and a map of raw
// settings; factories decode the settings with Decode and return the concrete
// implementation.
//
//	reg := factory.NewRegistry[history.Store]()
//	_ = reg.Register("jsonl", func(conf map[string]any) (history.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return history.OpenJSONL(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "runs.jsonl"}})
package factory
