package plugin

import "fmt"

// Outputs is a global map of HitOutput plugin factories.
var Outputs = map[string]func(port int) (HitOutput, error){
	"midi": func(port int) (HitOutput, error) {
		return NewMIDIOutput(port)
	},
}

func OutputLookup(name string, port int) (HitOutput, error) {
	factory, ok := Outputs[name]
	if !ok {
		return nil, fmt.Errorf("unknown output: %s", name)
	}
	return factory(port)
}
