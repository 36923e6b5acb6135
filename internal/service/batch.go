package service

import "github.com/codeway-learn/codeway-api/internal/models"

// DefaultBatchSize is the judge's hard cap on submissions per batch request.
const DefaultBatchSize = 20

// SplitTestCases partitions test cases into groups of at most batchSize while
// preserving order. The grouping is derived from the slice alone, so a retried
// run recomputes exactly the same batches.
func SplitTestCases(cases []models.TestCase, batchSize int) [][]models.TestCase {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if len(cases) == 0 {
		return nil
	}

	batches := make([][]models.TestCase, 0, (len(cases)+batchSize-1)/batchSize)
	for start := 0; start < len(cases); start += batchSize {
		end := start + batchSize
		if end > len(cases) {
			end = len(cases)
		}
		batches = append(batches, cases[start:end])
	}
	return batches
}
