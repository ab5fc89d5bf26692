package migrate

import (
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// LiveReservationIndex allows one reserved loan per member and book.
const LiveReservationIndex = "loans_one_live_reservation"

// AutoMigrateModels creates every table from its gorm model. It backs the
// sqlite dev database and the repository tests.
func AutoMigrateModels(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.Loan{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
		&models.Notification{},
	)
	if err != nil {
		return err
	}
	// gorm tags cannot express a partial index.
	return conn.Exec("CREATE UNIQUE INDEX IF NOT EXISTS " + LiveReservationIndex +
		" ON loans (user_id, book_id) WHERE status = 'reserved'").Error
}
