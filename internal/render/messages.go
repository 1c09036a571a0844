package render

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"raceview/pkg/domain"
)

// Message keys. English text doubles as the key.
const (
	msgTitle        = "Race Records"
	msgSearch       = "Search records..."
	msgSearchButton = "Search"
	msgLoading      = "Loading race records..."
	msgLoadError    = "Error loading race records. Please ensure the JSON file exists."
	msgErrorLabel   = "Error loading data"
	msgNoResults    = "No records found matching your search."
	msgShowing      = "Showing %d records"
	msgDarkMode     = "Dark mode"
	msgLightMode    = "Light mode"
	msgOtherLang    = "Français"
	msgRecord       = "Record %d"
	msgBack         = "Back to records"
	msgField        = "Field"
	msgValue        = "Value"
	msgSortBy       = "Sort by %s"
)

var fieldLabels = map[domain.Field]string{
	domain.FieldNumber:   "Number",
	domain.FieldYear:     "Year",
	domain.FieldVenue:    "Venue",
	domain.FieldLength:   "Length",
	domain.FieldName:     "Name",
	domain.FieldTime:     "Time",
	domain.FieldProvince: "Province",
	domain.FieldJockey:   "Jockey",
	domain.FieldTrainer:  "Trainer",
	domain.FieldOwner:    "Owner",
	domain.FieldBreeder:  "Breeder",
}

var french = map[string]string{
	msgTitle:        "Résultats des courses",
	msgSearch:       "Rechercher...",
	msgSearchButton: "Rechercher",
	msgLoading:      "Chargement des résultats...",
	msgLoadError:    "Erreur de chargement des résultats. Vérifiez que le fichier JSON existe.",
	msgErrorLabel:   "Erreur de chargement",
	msgNoResults:    "Aucun résultat ne correspond à votre recherche.",
	msgDarkMode:     "Mode sombre",
	msgLightMode:    "Mode clair",
	msgOtherLang:    "English",
	msgRecord:       "Fiche %d",
	msgBack:         "Retour aux résultats",
	msgField:        "Champ",
	msgValue:        "Valeur",
	msgSortBy:       "Trier par %s",
	"Number":        "Numéro",
	"Year":          "Année",
	"Venue":         "Hippodrome",
	"Length":        "Distance",
	"Name":          "Nom",
	"Time":          "Temps",
	"Province":      "Province",
	"Jockey":        "Jockey",
	"Trainer":       "Entraîneur",
	"Owner":         "Propriétaire",
	"Breeder":       "Éleveur",
}

// newCatalog builds the en/fr message catalog.
func newCatalog() (catalog.Catalog, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	if err := b.Set(language.English, msgShowing, plural.Selectf(1, "%d",
		plural.One, "Showing %d record",
		plural.Other, "Showing %d records")); err != nil {
		return nil, err
	}
	if err := b.Set(language.French, msgShowing, plural.Selectf(1, "%d",
		plural.One, "%d fiche affichée",
		plural.Other, "%d fiches affichées")); err != nil {
		return nil, err
	}
	for key, text := range french {
		if err := b.SetString(language.French, key, text); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// printerFor returns a printer for lang backed by cat.
func printerFor(cat catalog.Catalog, lang domain.Language) *message.Printer {
	return message.NewPrinter(lang.Tag(), message.Catalog(cat))
}

// FieldLabel returns the column label of f. Unknown fields are shown by name.
func FieldLabel(f domain.Field) string {
	if label, ok := fieldLabels[f]; ok {
		return label
	}
	return string(f)
}
