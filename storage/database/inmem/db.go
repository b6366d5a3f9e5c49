package inmemdb

import (
	"sync"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

type (
	DB struct {
		tx       sync.Mutex // serializes RunInTx
		panel    *panelTable
		schedule *scheduleTable
	}

	panelTable struct {
		sync.RWMutex
		table map[string]*defense.Panel
	}

	scheduleTable struct {
		sync.RWMutex
		table map[string]*defense.Schedule
	}
)

func Open() *DB {
	return &DB{
		panel:    &panelTable{table: make(map[string]*defense.Panel)},
		schedule: &scheduleTable{table: make(map[string]*defense.Schedule)},
	}
}
