package chatroom

import (
	"strconv"
	"strings"
	"time"

	"udg-chat/internal/constants"

	"github.com/google/uuid"
)

// newTempID 產生 temp_<毫秒>_<隨機> 格式的暫時 ID
func newTempID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return constants.TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + random
}
