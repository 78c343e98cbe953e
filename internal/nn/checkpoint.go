package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/gradkit/internal/serialization"
	"github.com/born-ml/gradkit/internal/tensor"
)

// ErrMissingVariable is returned by Load when the checkpoint lacks one of
// the module's variables.
var ErrMissingVariable = errors.New("checkpoint has no tensor for variable")

// Save writes the variables of m to a SafeTensors file.
func Save[B tensor.Backend](path string, m Module[B], metadata map[string]string) error {
	return serialization.WriteSafeTensors(path, StateDict(m), metadata)
}

// Load copies the variables of m from a SafeTensors file written by Save.
// Every shape is checked before any variable is modified. The checkpoint
// metadata is returned.
func Load[B tensor.Backend](path string, m Module[B], backend B) (map[string]string, error) {
	loaded, metadata, err := serialization.ReadSafeTensors(path, backend)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, r := range loaded {
			r.Release()
		}
	}()

	vars := m.Variables()
	for _, v := range vars {
		r, ok := loaded[v.Name()]
		if !ok {
			return nil, errors.Wrapf(ErrMissingVariable, "%s: %q", path, v.Name())
		}
		if !r.Shape().Equal(v.Shape()) || r.DType() != tensor.Float32 {
			return nil, errors.Errorf("%s: %q is %s%v, variable is float32%v", path, v.Name(), r.DType(), r.Shape(), v.Shape())
		}
	}
	for _, v := range vars {
		v.Assign(loaded[v.Name()])
	}
	return metadata, nil
}
