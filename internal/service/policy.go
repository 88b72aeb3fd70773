package service

// Actor 当前请求的已认证用户
type Actor struct {
	ID      uint
	IsStaff bool
}

// ensureOwner 仅对象所有者可写
func ensureOwner(actor Actor, ownerID uint) error {
	if actor.ID == 0 || actor.ID != ownerID {
		return ErrForbidden
	}
	return nil
}

// ensureStaff 仅管理员可写
func ensureStaff(actor Actor) error {
	if !actor.IsStaff {
		return ErrForbidden
	}
	return nil
}

// Paged 分页结果
type Paged[T any] struct {
	Items    []T
	Total    int64
	Page     int
	PageSize int
}

func pageOffset(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	return page, (page - 1) * size
}
