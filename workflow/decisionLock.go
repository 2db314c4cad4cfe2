package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquirePostDecisionLock serializes request decisions per post across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB connection that will perform the decision mutations.
func AcquirePostDecisionLock(conn *gorm.DB, postId int) error {
	lockName := fmt.Sprintf("adopt-decision:%d", postId)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire decision lock for post_id=%d", postId)
	}
	return nil
}

func ReleasePostDecisionLock(conn *gorm.DB, postId int) {
	lockName := fmt.Sprintf("adopt-decision:%d", postId)
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
