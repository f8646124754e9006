// Package entity holds the records the communes jobs read, store and export.
package entity

import "fmt"

// CommuneCSV is one raw line of the communes file. A nil field is a column missing from the
// line; an empty string is a present but empty column.
type CommuneCSV struct {
	CodeInsee           *string
	Nom                 *string
	CodePostal          *string
	Ligne5              *string
	LibelleAcheminement *string
	CoordonneesGPS      *string
}

func (c CommuneCSV) String() string {
	return fmt.Sprintf("CommuneCSV{codeInsee=%s, nom=%s, codePostal=%s, coordonneesGPS=%s}",
		deref(c.CodeInsee), deref(c.Nom), deref(c.CodePostal), deref(c.CoordonneesGPS))
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

// Commune is a validated, normalized commune as stored in the commune table.
type Commune struct {
	ID         uint     `gorm:"column:id;primaryKey;autoIncrement"`
	CodeInsee  string   `gorm:"column:code_insee;size:5;not null;uniqueIndex:uk_commune_code_insee"`
	CodePostal string   `gorm:"column:code_postal;size:5;not null;index:idx_commune_code_postal"`
	Nom        string   `gorm:"column:nom;not null"`
	Latitude   *float64 `gorm:"column:latitude"`
	Longitude  *float64 `gorm:"column:longitude"`
}

// TableName specifies the table name for Commune.
func (Commune) TableName() string {
	return "commune"
}

// HasCoordinates reports whether both coordinates are known.
func (c *Commune) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

func (c *Commune) String() string {
	if c == nil {
		return "<nil>"
	}
	if c.HasCoordinates() {
		return fmt.Sprintf("Commune{codeInsee=%s, codePostal=%s, nom=%s, lat=%f, lon=%f}", c.CodeInsee, c.CodePostal, c.Nom, *c.Latitude, *c.Longitude)
	}
	return fmt.Sprintf("Commune{codeInsee=%s, codePostal=%s, nom=%s}", c.CodeInsee, c.CodePostal, c.Nom)
}

// CommuneSnapshot is the Parquet row of the commune snapshot export.
type CommuneSnapshot struct {
	CodeInsee  string   `parquet:"name=code_insee, type=BYTE_ARRAY, convertedtype=UTF8"`
	CodePostal string   `parquet:"name=code_postal, type=BYTE_ARRAY, convertedtype=UTF8"`
	Nom        string   `parquet:"name=nom, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude   *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude  *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// SnapshotOf converts c to its snapshot row.
func SnapshotOf(c *Commune) CommuneSnapshot {
	return CommuneSnapshot{
		CodeInsee:  c.CodeInsee,
		CodePostal: c.CodePostal,
		Nom:        c.Nom,
		Latitude:   c.Latitude,
		Longitude:  c.Longitude,
	}
}
