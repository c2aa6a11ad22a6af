package execution

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a process-unique execution identifier of the form
// exec_<ms>_<random>. The millisecond prefix keeps identifiers roughly
// sortable by start time; the random suffix guarantees uniqueness for
// executions started within the same millisecond.
func NewID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("exec_%d_%s", time.Now().UnixMilli(), random)
}
