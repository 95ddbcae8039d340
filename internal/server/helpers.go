package server

import (
	"github.com/gofiber/fiber/v2"
)

// Page holds parsed pageNumber/pageSize query parameters.
type Page struct {
	Number int
	Size   int
}

const maxPageSize = 100

// parsePage extracts pageNumber and pageSize query parameters with the given
// default size. Out-of-range values are clamped here so handler queries only
// ever fail validation on deliberate misuse of the service API.
func parsePage(c *fiber.Ctx, defaultSize int) Page {
	number := c.QueryInt("pageNumber", 1)
	if number < 1 {
		number = 1
	}

	size := c.QueryInt("pageSize", defaultSize)
	if size <= 0 {
		size = defaultSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	return Page{Number: number, Size: size}
}
