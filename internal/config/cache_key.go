package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// ExamPayloadKey returns the cache key for an exam's student-facing payload
func (r *CacheKeyStruct) ExamPayloadKey(examID int64) string {
	return fmt.Sprintf("exam:%d:payload", examID)
}

// ExamAnswerKey returns the cache key for an exam's answer key hash
func (r *CacheKeyStruct) ExamAnswerKey(examID int64) string {
	return fmt.Sprintf("exam:%d:key", examID)
}

// StudentAttemptsKey returns the cache key for a student's saved answers.
// Hash field is the question id, value is the JSON encoded attempt row.
func (r *CacheKeyStruct) StudentAttemptsKey(examID int64, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%d:attempts", studentID, examID)
}

// StudentProgressKey returns the cache key for a student's elapsed seconds
func (r *CacheKeyStruct) StudentProgressKey(examID int64, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%d:progress", studentID, examID)
}

// StudentResultKey returns the cache key holding the result id of a submitted attempt
func (r *CacheKeyStruct) StudentResultKey(examID int64, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%d:result", studentID, examID)
}

// ResultKey returns the cache key for a graded result, used for the results hand-off
func (r *CacheKeyStruct) ResultKey(resultID string) string {
	return fmt.Sprintf("result:%s", resultID)
}

var CacheKey = NewCacheKeyStruct()
