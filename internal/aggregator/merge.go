package aggregator

import "medease-realtime/internal/models"

// 合并均为写时复制：返回新切片，不修改入参（快照副本可能仍被读者持有）

// prependByID insert：放到最前；id 已存在时替换并移到最前。limit > 0 时截断
func prependByID[T models.Record](list []T, rec T, limit int) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, rec)
	for _, item := range list {
		if item.RecordID() != rec.RecordID() {
			out = append(out, item)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// replaceByID update：按 id 替换，返回旧值；id 不存在时原样返回
func replaceByID[T models.Record](list []T, rec T) ([]T, *T) {
	for i, item := range list {
		if item.RecordID() == rec.RecordID() {
			out := append([]T(nil), list...)
			prev := item
			out[i] = rec
			return out, &prev
		}
	}
	return list, nil
}

// removeByID delete：按 id 删除
func removeByID[T models.Record](list []T, id string) ([]T, bool) {
	for i, item := range list {
		if item.RecordID() == id {
			out := make([]T, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, list[i+1:]...)
			return out, true
		}
	}
	return list, false
}

// truncate 截断到 limit（limit <= 0 不截断）
func truncate[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		return append([]T(nil), list[:limit]...)
	}
	return list
}
