package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/roza-in/client-sub001/internal/booking"
	"github.com/roza-in/client-sub001/internal/schedule"
)

const (
	TypeBookingConfirmed = "notification:booking_confirmed"
	TypeBookingCancelled = "notification:booking_cancelled"

	queueName = "notifications"
)

type BookingPayload struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	Status        string `json:"status"`
	Day           string `json:"day"`
	Start         string `json:"start"`
	Type          string `json:"type"`
}

// Dispatcher enqueues booking notifications on Redis. Fire and forget: an
// enqueue failure is logged and swallowed, it never rolls a booking back.
type Dispatcher struct {
	client *asynq.Client
	log    *zap.Logger
}

func NewDispatcher(opt asynq.RedisClientOpt, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: asynq.NewClient(opt),
		log:    log,
	}
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

func (d *Dispatcher) BookingConfirmed(ctx context.Context, appt *booking.Appointment) {
	d.enqueue(ctx, TypeBookingConfirmed, appt)
}

func (d *Dispatcher) BookingCancelled(ctx context.Context, appt *booking.Appointment) {
	d.enqueue(ctx, TypeBookingCancelled, appt)
}

func (d *Dispatcher) enqueue(ctx context.Context, taskType string, appt *booking.Appointment) {
	payload, err := json.Marshal(BookingPayload{
		AppointmentID: appt.ID.String(),
		PatientID:     appt.PatientID.String(),
		DoctorID:      appt.DoctorID.String(),
		Status:        string(appt.Status),
		Day:           appt.Day.Format("2006-01-02"),
		Start:         schedule.FormatTimeOfDay(appt.StartMin),
		Type:          string(appt.Type),
	})
	if err != nil {
		d.log.Warn("failed to marshal notification payload", zap.Error(err))
		return
	}

	task := asynq.NewTask(taskType, payload)
	if _, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	); err != nil {
		d.log.Warn("failed to enqueue notification",
			zap.String("task", taskType),
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
	}
}

// NewServeMux registers the notification handlers for the worker process.
// Actual delivery channels (SMS, push, email) are external collaborators;
// the handler resolves the payload and hands it off.
func NewServeMux(log *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingConfirmed, handleBookingEvent(log, "confirmed"))
	mux.HandleFunc(TypeBookingCancelled, handleBookingEvent(log, "cancelled"))
	return mux
}

func handleBookingEvent(log *zap.Logger, kind string) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p BookingPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Warn("invalid notification payload", zap.Error(err))
			return err
		}

		log.Info("dispatching booking notification",
			zap.String("kind", kind),
			zap.String("appointment_id", p.AppointmentID),
			zap.String("patient_id", p.PatientID),
			zap.String("day", p.Day),
			zap.String("start", p.Start))

		return nil
	}
}

// Queues returns the asynq queue weights for the worker server.
func Queues() map[string]int {
	return map[string]int{queueName: 1}
}
