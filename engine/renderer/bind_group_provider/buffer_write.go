package bind_group_provider

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// WriteBuffers uploads every write through queue. A write whose provider has no
// buffer at the binding is an error and stops the upload. The queue copies data
// before returning, so callers may reuse their slices.
//
// Parameters:
//   - queue: the device queue
//   - writes: the writes to perform, in order
//
// Returns:
//   - error: the first write whose buffer could not be resolved
func WriteBuffers(queue *wgpu.Queue, writes ...BufferWrite) error {
	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			return fmt.Errorf("bind group provider %s: no buffer at binding %d", w.Provider.Label(), w.Binding)
		}
		queue.WriteBuffer(buf, w.Offset, w.Data)
	}
	return nil
}
