package service

import (
	"GeoCMS/backend/go/internal/conversation_service/store"
	"GeoCMS/backend/go/internal/models"
	"context"
	"fmt"
)

// 管理查询的分页上限。
const (
	defaultRunPageSize = 50
	maxRunPageSize     = 100
)

// RunPage 是分页的会话列表，计数针对全部会话，不受过滤条件影响。
type RunPage struct {
	Total          int64        `json:"total"`
	ActiveCount    int64        `json:"active_count"`
	CompletedCount int64        `json:"completed_count"`
	FailedCount    int64        `json:"failed_count"`
	Runs           []RunSummary `json:"runs"`
}

// RunCounts 是按状态汇总的会话数量。
type RunCounts struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// TaskCounts 是按状态汇总的任务数量。
type TaskCounts struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats 是会话和任务的整体统计。
type Stats struct {
	Runs  RunCounts  `json:"runs"`
	Tasks TaskCounts `json:"tasks"`
}

// ListRuns 分页列出会话。status 为空表示不过滤；limit 取值 1..100，为 0 时取 50。
func (c *Coordinator) ListRuns(ctx context.Context, status string, limit, offset int) (page *RunPage, err error) {
	defer c.recoverPanic("list_runs", "", &err)

	filter := store.RunFilter{Status: models.RunStatus(status), Limit: limit, Offset: offset}
	switch filter.Status {
	case "", models.RunStatusActive, models.RunStatusCompleted, models.RunStatusFailed:
	default:
		return nil, fmt.Errorf("%w: 无效的状态 %q，有效值: active, completed, failed", ErrInvalidInput, status)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultRunPageSize
	}
	if filter.Limit < 0 || filter.Limit > maxRunPageSize {
		return nil, fmt.Errorf("%w: limit 必须在 1 到 %d 之间", ErrInvalidInput, maxRunPageSize)
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: offset 不能为负数", ErrInvalidInput)
	}

	runs, total, err := c.runs.ListFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}
	counts, err := c.runs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	page = &RunPage{
		Total:          total,
		ActiveCount:    counts[models.RunStatusActive],
		CompletedCount: counts[models.RunStatusCompleted],
		FailedCount:    counts[models.RunStatusFailed],
		Runs:           make([]RunSummary, 0, len(runs)),
	}
	for i := range runs {
		page.Runs = append(page.Runs, c.toRunSummary(&runs[i]))
	}
	return page, nil
}

// ListRunTasks 按创建顺序返回会话的全部任务。
func (c *Coordinator) ListRunTasks(ctx context.Context, runID string) (views []TaskView, err error) {
	defer c.recoverPanic("list_run_tasks", runID, &err)

	if _, err := c.runs.Get(ctx, runID); err != nil {
		return nil, err
	}
	tasks, err := c.tasks.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	views = make([]TaskView, 0, len(tasks))
	for i := range tasks {
		views = append(views, toTaskView(&tasks[i]))
	}
	return views, nil
}

// GetTask 返回单个任务。
func (c *Coordinator) GetTask(ctx context.Context, taskID string) (view *TaskView, err error) {
	defer c.recoverPanic("get_task", "", &err)

	task, err := c.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	v := toTaskView(task)
	return &v, nil
}

// Stats 汇总会话和任务的状态分布。
func (c *Coordinator) Stats(ctx context.Context) (stats *Stats, err error) {
	defer c.recoverPanic("stats", "", &err)

	runCounts, err := c.runs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	taskCounts, err := c.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats = &Stats{
		Runs: RunCounts{
			Active:    runCounts[models.RunStatusActive],
			Completed: runCounts[models.RunStatusCompleted],
			Failed:    runCounts[models.RunStatusFailed],
		},
		Tasks: TaskCounts{
			Pending:   taskCounts[models.TaskStatusPending],
			Completed: taskCounts[models.TaskStatusCompleted],
			Failed:    taskCounts[models.TaskStatusFailed],
		},
	}
	for _, n := range runCounts {
		stats.Runs.Total += n
	}
	for _, n := range taskCounts {
		stats.Tasks.Total += n
	}
	return stats, nil
}
