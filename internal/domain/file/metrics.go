package file

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedock_uploads_total",
			Help: "Uploaded files by result",
		},
		[]string{"result"},
	)

	uploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filedock_uploaded_bytes_total",
			Help: "Bytes accepted into the blob store",
		},
	)

	deletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedock_deletes_total",
			Help: "Delete operations by result",
		},
		[]string{"result"},
	)

	// inconsistenciesTotal counts blob/metadata mismatches observed by read
	// paths and by partial failures that leave one side behind.
	inconsistenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedock_inconsistencies_total",
			Help: "Observed orphans by kind (missing_blob, orphan_blob)",
		},
		[]string{"kind"},
	)
)
