package query

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reportportal/service-api/pkg/db/models"
)

// SaveTickets stores tickets unknown so far and fills in the ids of all of them.
func SaveTickets(tx *gorm.DB, tickets []models.Ticket) error {
	for i := range tickets {
		t := &tickets[i]
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticket_id"}, {Name: "bts_url"}, {Name: "bts_project"}},
			DoUpdates: clause.AssignmentColumns([]string{"url"}),
		}).Create(t)
		if res.Error != nil {
			return res.Error
		}
		if t.ID == 0 {
			if res := tx.Where("ticket_id = ? AND bts_url = ? AND bts_project = ?", t.TicketID, t.BtsURL, t.BtsProject).
				First(t); res.Error != nil {
				return res.Error
			}
		}
	}
	return nil
}

// LinkTickets attaches the tickets to the issues of the items. Items without an issue are
// returned and left untouched.
func LinkTickets(tx *gorm.DB, itemIDs []uint, tickets []models.Ticket) ([]uint, error) {
	if err := SaveTickets(tx, tickets); err != nil {
		return nil, err
	}
	var withIssue []uint
	if res := tx.Model(&models.Issue{}).Where("item_id IN ?", itemIDs).Pluck("item_id", &withIssue); res.Error != nil {
		return nil, res.Error
	}
	linked := make(map[uint]bool, len(withIssue))
	for _, id := range withIssue {
		linked[id] = true
		for _, t := range tickets {
			res := tx.Exec("INSERT INTO issue_tickets (issue_id, ticket_id) VALUES (?, ?) ON CONFLICT DO NOTHING", id, t.ID)
			if res.Error != nil {
				return nil, res.Error
			}
		}
	}
	var skipped []uint
	for _, id := range itemIDs {
		if !linked[id] {
			skipped = append(skipped, id)
		}
	}
	return skipped, nil
}

// UnlinkTickets detaches the tickets with the given keys from the issues of the items.
func UnlinkTickets(tx *gorm.DB, itemIDs []uint, ticketIDs []string) error {
	return tx.Exec(`DELETE FROM issue_tickets WHERE issue_id IN ?
		AND ticket_id IN (SELECT id FROM tickets WHERE ticket_id IN ?)`, itemIDs, ticketIDs).Error
}
