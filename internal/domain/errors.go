package domain

import "errors"

var (
	// ErrEmptyInput is returned when there are no raw records to process.
	ErrEmptyInput = errors.New("no asset records")
	// ErrAssetNotFound is returned by single-asset lookups.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrSheetNotFound means the spreadsheet does not exist under that exact
	// name or the service account cannot see it.
	ErrSheetNotFound = errors.New("spreadsheet not found")
	// ErrUnknownDataset is returned for dataset names outside Datasets.
	ErrUnknownDataset = errors.New("unknown dataset")
)
