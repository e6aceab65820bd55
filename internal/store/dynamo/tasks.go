// Package dynamo implements the task status table on DynamoDB.
// Conditional writes use native condition expressions, matching the
// optimistic-concurrency discipline of the Postgres store.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"decksmith/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Client is the slice of the DynamoDB API the store needs. Tests substitute
// a fake; production passes *dynamodb.Client.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// TaskStore is a DynamoDB-backed store.TaskStore.
type TaskStore struct {
	client Client
	table  string
}

// New creates a TaskStore for the given table.
func New(client Client, table string) *TaskStore {
	return &TaskStore{client: client, table: table}
}

// taskRecord is the DynamoDB item shape for a task.
type taskRecord struct {
	ID              string  `dynamodbav:"id"`
	Status          string  `dynamodbav:"status"`
	Topic           string  `dynamodbav:"topic"`
	PageCount       int     `dynamodbav:"page_count"`
	Style           string  `dynamodbav:"style"`
	Progress        int     `dynamodbav:"progress"`
	OutlineRef      *string `dynamodbav:"outline_ref,omitempty"`
	ContentRef      *string `dynamodbav:"content_ref,omitempty"`
	ArtifactRef     *string `dynamodbav:"artifact_ref,omitempty"`
	ErrorKind       *string `dynamodbav:"error_kind,omitempty"`
	ErrorMessage    *string `dynamodbav:"error_message,omitempty"`
	OutlineAttempts int     `dynamodbav:"outline_attempts"`
	ContentAttempts int     `dynamodbav:"content_attempts"`
	ImagesAttempts  int     `dynamodbav:"images_attempts"`
	CompileAttempts int     `dynamodbav:"compile_attempts"`
	CreatedAt       string  `dynamodbav:"created_at"`
	UpdatedAt       string  `dynamodbav:"updated_at"`
}

func attemptAttr(stage store.TaskStatus) (string, error) {
	switch stage {
	case store.StatusOutline:
		return "outline_attempts", nil
	case store.StatusContent:
		return "content_attempts", nil
	case store.StatusImages:
		return "images_attempts", nil
	case store.StatusCompile:
		return "compile_attempts", nil
	default:
		return "", fmt.Errorf("stage %s has no attempt counter", stage)
	}
}

// CreateTask inserts a new task; duplicate IDs are rejected.
func (s *TaskStore) CreateTask(ctx context.Context, task *store.Task) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rec := taskRecord{
		ID:        task.ID.String(),
		Status:    string(task.Status),
		Topic:     task.Topic,
		PageCount: task.PageCount,
		Style:     task.Style,
		Progress:  task.Progress,
		CreatedAt: now,
		UpdatedAt: now,
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask returns a task by its ID.
func (s *TaskStore) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            taskKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, store.ErrNotFound
	}

	var rec taskRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}

	return rec.toTask()
}

// AdvanceStatus transitions a task guarded by the expected previous status.
func (s *TaskStore) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to store.TaskStatus, update store.TaskUpdate) error {
	expr := "SET #st = :to, progress = :progress, updated_at = :now"
	names := map[string]string{"#st": "status"}
	values := map[string]types.AttributeValue{
		":from":     &types.AttributeValueMemberS{Value: string(from)},
		":to":       &types.AttributeValueMemberS{Value: string(to)},
		":progress": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", to.Progress())},
		":now":      &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
	}

	if update.OutlineRef != nil {
		expr += ", outline_ref = :outline_ref"
		values[":outline_ref"] = &types.AttributeValueMemberS{Value: *update.OutlineRef}
	}
	if update.ContentRef != nil {
		expr += ", content_ref = :content_ref"
		values[":content_ref"] = &types.AttributeValueMemberS{Value: *update.ContentRef}
	}
	if update.ArtifactRef != nil {
		expr += ", artifact_ref = :artifact_ref"
		values[":artifact_ref"] = &types.AttributeValueMemberS{Value: *update.ArtifactRef}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       taskKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("#st = :from"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrStaleStatus
		}
		return fmt.Errorf("failed to advance task %s to %s: %w", id, to, err)
	}
	return nil
}

// IncrementAttempt bumps a stage's attempt counter and returns the new count.
func (s *TaskStore) IncrementAttempt(ctx context.Context, id uuid.UUID, stage store.TaskStatus) (int, error) {
	attr, err := attemptAttr(stage)
	if err != nil {
		return 0, err
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.table),
		Key:                      taskKey(id),
		UpdateExpression:         aws.String("ADD #ctr :one SET updated_at = :now"),
		ConditionExpression:      aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{"#ctr": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment %s attempts for task %s: %w", stage, id, err)
	}

	// UPDATED_NEW echoes every attribute the update touched, updated_at
	// included, so read back only the counter.
	ctr, ok := out.Attributes[attr]
	if !ok {
		return 0, fmt.Errorf("attempt counter %s missing from update response for task %s", attr, id)
	}
	var count int
	if err := attributevalue.Unmarshal(ctr, &count); err != nil {
		return 0, fmt.Errorf("failed to read attempt counter for task %s: %w", id, err)
	}
	return count, nil
}

// MarkFailed terminally fails a non-terminal task.
func (s *TaskStore) MarkFailed(ctx context.Context, id uuid.UUID, taskErr *store.TaskError) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 taskKey(id),
		UpdateExpression:    aws.String("SET #st = :failed, error_kind = :kind, error_message = :msg, updated_at = :now"),
		ConditionExpression: aws.String("NOT #st IN (:completed, :failed)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":    &types.AttributeValueMemberS{Value: string(store.StatusFailed)},
			":completed": &types.AttributeValueMemberS{Value: string(store.StatusCompleted)},
			":kind":      &types.AttributeValueMemberS{Value: taskErr.Kind},
			":msg":       &types.AttributeValueMemberS{Value: taskErr.Message},
			":now":       &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return store.ErrStaleStatus
		}
		return fmt.Errorf("failed to mark task %s failed: %w", id, err)
	}
	return nil
}

func taskKey(id uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id.String()},
	}
}

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}

func (r *taskRecord) toTask() (*store.Task, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", r.ID, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at for task %s: %w", r.ID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at for task %s: %w", r.ID, err)
	}

	t := &store.Task{
		ID:              id,
		Status:          store.TaskStatus(r.Status),
		Topic:           r.Topic,
		PageCount:       r.PageCount,
		Style:           r.Style,
		Progress:        r.Progress,
		OutlineRef:      r.OutlineRef,
		ContentRef:      r.ContentRef,
		ArtifactRef:     r.ArtifactRef,
		OutlineAttempts: r.OutlineAttempts,
		ContentAttempts: r.ContentAttempts,
		ImagesAttempts:  r.ImagesAttempts,
		CompileAttempts: r.CompileAttempts,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
	if r.ErrorKind != nil {
		t.Error = &store.TaskError{Kind: *r.ErrorKind}
		if r.ErrorMessage != nil {
			t.Error.Message = *r.ErrorMessage
		}
	}
	return t, nil
}
