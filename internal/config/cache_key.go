package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptSessionKey returns the cache key holding an attempt's live session token
func (r *CacheKeyStruct) AttemptSessionKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:session", attemptID)
}

// ExamKey returns the cache key for an exam's catalog record
func (r *CacheKeyStruct) ExamKey(examID string) string {
	return fmt.Sprintf("exam:%s:record", examID)
}

// ExamQuestionsKey returns the cache key for an exam's question set, answer key included
func (r *CacheKeyStruct) ExamQuestionsKey(examID string) string {
	return fmt.Sprintf("exam:%s:questions", examID)
}

// EnrollmentKey returns the cache key for a student's enrollment in a class
func (r *CacheKeyStruct) EnrollmentKey(classID, studentID int) string {
	return fmt.Sprintf("class:%d:student:%d:enrolled", classID, studentID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
