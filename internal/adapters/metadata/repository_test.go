package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

var machineCols = []string{"id", "name", "opc_endpoint", "automate_type", "is_active"}
var tagCols = []string{"id", "machine_id", "name", "node_id", "data_type", "unit", "min_value", "max_value", "allowed_values", "is_active"}

func TestListActiveMachinesJoinsTags(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM machines WHERE is_active = true").
		WillReturnRows(sqlmock.NewRows(machineCols).
			AddRow(1, "press-01", "opc.tcp://10.0.0.1:4840", "S7-1500", true).
			AddRow(2, "oven-02", "opc.tcp://10.0.0.2:4840", nil, true))

	mock.ExpectQuery("SELECT (.+) FROM tags WHERE is_active = true AND machine_id = ANY").
		WillReturnRows(sqlmock.NewRows(tagCols).
			AddRow(10, 1, "temperature", "ns=2;s=Press01.Temperature", "Double", "°C", 0.0, 250.0, nil, true).
			AddRow(11, 1, "state", "ns=2;s=Press01.State", "String", nil, nil, nil, "Running,Stopped", true).
			AddRow(20, 2, "pressure", "ns=2;s=Oven02.Pressure", "Float", "bar", nil, 16.0, nil, true))

	machines, err := NewRepository(db).ListActiveMachines(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(machines) != 2 {
		t.Fatalf("got %d machines, want 2", len(machines))
	}
	if len(machines[0].Tags) != 2 || len(machines[1].Tags) != 1 {
		t.Fatalf("tag join wrong: %d/%d", len(machines[0].Tags), len(machines[1].Tags))
	}

	temp := machines[0].Tags[0]
	if temp.MinValue == nil || *temp.MinValue != 0 || temp.MaxValue == nil || *temp.MaxValue != 250 {
		t.Errorf("range bounds not scanned: %+v", temp)
	}
	state := machines[0].Tags[1]
	if state.Unit != "" || state.AllowedValues != "Running,Stopped" {
		t.Errorf("nullable columns wrong: %+v", state)
	}
	if got := state.AllowedList(); len(got) != 2 || got[0] != "Running" {
		t.Errorf("allowed list = %v", got)
	}
	press := machines[1].Tags[0]
	if press.MinValue != nil || press.MaxValue == nil {
		t.Errorf("open lower bound wrong: %+v", press)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetTagByNodeID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM tags WHERE node_id =").
		WithArgs("ns=2;s=Press01.Temperature").
		WillReturnRows(sqlmock.NewRows(tagCols).
			AddRow(10, 1, "temperature", "ns=2;s=Press01.Temperature", "Double", "°C", 0.0, 250.0, nil, true))

	tag, err := NewRepository(db).GetTagByNodeID(context.Background(), "ns=2;s=Press01.Temperature")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tag.ID != 10 || tag.MachineID != 1 || tag.DataType != "Double" {
		t.Errorf("tag = %+v", tag)
	}
}

func TestGetTagByNodeIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM tags WHERE node_id =").
		WithArgs("ns=2;s=UNKNOWN").
		WillReturnRows(sqlmock.NewRows(tagCols))

	_, err = NewRepository(db).GetTagByNodeID(context.Background(), "ns=2;s=UNKNOWN")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListActiveMachinesEmptySkipsTagQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM machines WHERE is_active = true").
		WillReturnRows(sqlmock.NewRows(machineCols))

	machines, err := NewRepository(db).ListActiveMachines(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(machines) != 0 {
		t.Fatalf("got %d machines, want 0", len(machines))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("tag query should not run with no machines: %v", err)
	}
}
