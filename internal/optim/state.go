package optim

import (
	"maps"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/serialization"
)

// optimizerKey is the metadata entry naming the algorithm a state file belongs to.
const optimizerKey = "optimizer"

// SaveState writes the optimizer's StateDict to a SafeTensors file.
// The algorithm name is recorded in the metadata next to the caller's entries.
func SaveState[B autodiff.Differentiable](path string, opt Optimizer[B], metadata map[string]string) error {
	meta := make(map[string]string, len(metadata)+1)
	maps.Copy(meta, metadata)
	meta[optimizerKey] = opt.Name()

	state := opt.StateDict()
	if err := serialization.WriteSafeTensors(path, state, meta); err != nil {
		return errors.WithMessagef(err, "%s: saving state", opt.Name())
	}
	klog.V(1).Infof("%s: saved %d state tensors to %s", opt.Name(), len(state), path)
	return nil
}

// LoadState reads a file written by SaveState into opt. The file must have
// been written by the same algorithm. It returns the file metadata.
func LoadState[B autodiff.Differentiable](path string, opt Optimizer[B], backend B) (map[string]string, error) {
	state, meta, err := serialization.ReadSafeTensors(path, backend)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: loading state", opt.Name())
	}
	defer func() {
		for _, t := range state {
			t.Release()
		}
	}()

	if name, ok := meta[optimizerKey]; ok && name != opt.Name() {
		return nil, errors.Errorf("%s: state file %s was written by %q", opt.Name(), path, name)
	}
	if err := opt.LoadStateDict(state); err != nil {
		return nil, err
	}
	klog.V(1).Infof("%s: loaded %d state tensors from %s", opt.Name(), len(state), path)
	return meta, nil
}
