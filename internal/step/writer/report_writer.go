package writer

import (
	appconfig "github.com/tigerroll/communes/internal/config"
	entity "github.com/tigerroll/communes/internal/domain/entity"
	"github.com/tigerroll/communes/internal/report"
	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	batchwriter "github.com/tigerroll/communes/pkg/batch/component/step/writer"
)

// NewReportWriter writes the communes report to the report object of conn: the header, one line
// per commune formatted by assembler, then the footer.
func NewReportWriter(conn storage.StorageExecutor, cfg appconfig.ExportConfig, assembler *report.Assembler) *batchwriter.FlatFileItemWriter[*entity.Commune] {
	w := batchwriter.NewFlatFileItemWriter[*entity.Commune]("reportWriter", conn, batchwriter.FlatFileConfig{
		Bucket:     cfg.Bucket,
		ObjectName: cfg.Report,
	}, assembler)
	w.SetHeaderCallback(assembler.Header)
	w.SetFooterCallback(assembler.Footer)
	return w
}

// NewSnapshotWriter writes every commune to the Parquet snapshot object of conn.
func NewSnapshotWriter(conn storage.StorageExecutor, cfg appconfig.ExportConfig) (*batchwriter.ParquetItemWriter[entity.CommuneSnapshot], error) {
	snapshot := cfg.Snapshot
	if snapshot.Bucket == "" {
		snapshot.Bucket = cfg.Bucket
	}
	return batchwriter.NewParquetItemWriter("snapshotWriter", conn, snapshot, new(entity.CommuneSnapshot))
}
