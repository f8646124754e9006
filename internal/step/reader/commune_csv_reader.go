// Package reader builds the item readers of the communes jobs: the communes file reader and the
// paging readers over the commune table.
package reader

import (
	appconfig "github.com/tigerroll/communes/internal/config"
	entity "github.com/tigerroll/communes/internal/domain/entity"
	storage "github.com/tigerroll/communes/pkg/batch/adapter/storage"
	batchreader "github.com/tigerroll/communes/pkg/batch/component/step/reader"
)

// Column names of the communes file, in file order.
const (
	ColumnCodeInsee           = "codeInsee"
	ColumnNom                 = "nom"
	ColumnCodePostal          = "codePostal"
	ColumnLigne5              = "ligne5"
	ColumnLibelleAcheminement = "libelleAcheminement"
	ColumnCoordonneesGPS      = "coordonneesGPS"
)

// CommuneColumns lists the columns of the communes file.
var CommuneColumns = []string{
	ColumnCodeInsee,
	ColumnNom,
	ColumnCodePostal,
	ColumnLigne5,
	ColumnLibelleAcheminement,
	ColumnCoordonneesGPS,
}

// NewCommuneCSVReader creates the reader of the communes file. Lines whose number of columns
// differs from CommuneColumns are returned as *batchreader.ParseError.
func NewCommuneCSVReader(source batchreader.Source, cfg appconfig.ImportConfig) *batchreader.DelimitedFileReader[*entity.CommuneCSV] {
	return batchreader.NewDelimitedFileReader("communeCSVReader", source, batchreader.DelimitedConfig{
		Delimiter:   cfg.DelimiterRune(),
		LinesToSkip: cfg.LinesToSkip,
		Names:       CommuneColumns,
	}, MapCommuneCSV)
}

// MapCommuneCSV maps a tokenized line to a CommuneCSV.
func MapCommuneCSV(fs batchreader.FieldSet) (*entity.CommuneCSV, error) {
	return &entity.CommuneCSV{
		CodeInsee:           fs.Ptr(ColumnCodeInsee),
		Nom:                 fs.Ptr(ColumnNom),
		CodePostal:          fs.Ptr(ColumnCodePostal),
		Ligne5:              fs.Ptr(ColumnLigne5),
		LibelleAcheminement: fs.Ptr(ColumnLibelleAcheminement),
		CoordonneesGPS:      fs.Ptr(ColumnCoordonneesGPS),
	}, nil
}

// CommuneFileSource returns the source of the communes file: an object of conn when the import
// names a storage connection, the local file input_file otherwise.
func CommuneFileSource(cfg appconfig.ImportConfig, conn storage.StorageExecutor) batchreader.Source {
	if cfg.Storage == "" || conn == nil {
		return batchreader.FileSource(cfg.InputFile)
	}
	return batchreader.StorageSource(conn, cfg.Bucket, cfg.InputFile)
}
