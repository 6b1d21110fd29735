// Package events — шина доменных событий поверх Redis pub/sub.
//
// Producer'ы (API, worker'ы) публикуют Envelope в один из топиков
// (chat:events, message:events, typing:events, channel:sync).
// Realtime-gateway подписывается на все топики и передаёт конверты
// в routing.Router.
//
// Redis pub/sub не хранит сообщения: если gateway не подписан, событие
// теряется. Для эфемерных сигналов это допустимо; долговечные события
// опираются на строки в базе tenant'а, клиент перечитывает их при reconnect.
package events
